// Package nfvotest provides an in-memory orchestrator for tests.
package nfvotest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/softfire/nfv-manager/pkg/nfvo"
)

// Agent is an in-memory nfvo.Agent. The zero value is not usable; call New.
type Agent struct {
	mu sync.Mutex

	seq      int
	calls    []string
	failures map[string]error
	nsrFail  map[string]error

	projects []nfvo.Project
	users    map[string][]nfvo.User
	vims     map[string][]nfvo.VimInstance
	keys     map[string][]nfvo.Key
	packages map[string]nfvo.VNFD
	nsds     map[string]nfvo.NSD
	nsrs     map[string]*nfvo.NSR
	lingers  map[string]int

	// CSARs maps an archive path to the descriptor it onboards as.
	CSARs map[string]nfvo.NSD

	// LingerPolls is how many GetNSR calls still see a record after it was deleted.
	LingerPolls int

	// LastNSRBody is the body of the most recent CreateNSR call.
	LastNSRBody *nfvo.NSRBody

	// AfterGetNSR, when set, runs after every successful GetNSR, outside
	// the fake's lock, before the result is returned.
	AfterGetNSR func(id string)
}

var _ nfvo.Agent = (*Agent)(nil)

// New creates an empty fake orchestrator.
func New() *Agent {
	return &Agent{
		failures: make(map[string]error),
		nsrFail:  make(map[string]error),
		users:    make(map[string][]nfvo.User),
		vims:     make(map[string][]nfvo.VimInstance),
		keys:     make(map[string][]nfvo.Key),
		packages: make(map[string]nfvo.VNFD),
		nsds:     make(map[string]nfvo.NSD),
		nsrs:     make(map[string]*nfvo.NSR),
		lingers:  make(map[string]int),
		CSARs:    make(map[string]nfvo.NSD),
	}
}

// NotFound builds the error the fake returns for missing entities.
func NotFound(kind, id string) error {
	return &nfvo.APIError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// FailOn makes every call to op (e.g. "CreateNSR") return err. A nil err clears it.
func (a *Agent) FailOn(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.failures, op)
		return
	}
	a.failures[op] = err
}

// FailGetNSR makes GetNSR for one record id return err.
func (a *Agent) FailGetNSR(id string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nsrFail[id] = err
}

// Calls returns the operations invoked so far, in order.
func (a *Agent) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// CallCount returns how many times op was invoked.
func (a *Agent) CallCount(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c == op {
			n++
		}
	}
	return n
}

// AddProject seeds a project and returns it.
func (a *Agent) AddProject(name string) nfvo.Project {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := nfvo.Project{ID: a.nextID("project"), Name: name}
	a.projects = append(a.projects, p)
	return p
}

// AddVimInstance seeds a vim instance in a project.
func (a *Agent) AddVimInstance(projectID string, vim nfvo.VimInstance) nfvo.VimInstance {
	a.mu.Lock()
	defer a.mu.Unlock()
	vim.ID = a.nextID("vim")
	a.vims[projectID] = append(a.vims[projectID], vim)
	return vim
}

// AddNSD seeds a descriptor in a project.
func (a *Agent) AddNSD(projectID string, nsd nfvo.NSD) nfvo.NSD {
	a.mu.Lock()
	defer a.mu.Unlock()
	nsd.ID = a.nextID("nsd")
	a.nsds[projectID+"/"+nsd.ID] = nsd
	return nsd
}

// SetNSRStatus changes the status the orchestrator reports for a record.
func (a *Agent) SetNSRStatus(id, status string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if nsr, ok := a.nsrs[id]; ok {
		nsr.Status = status
	}
}

// NSRCount returns how many records exist.
func (a *Agent) NSRCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nsrs)
}

// NSDs returns the descriptors of a project.
func (a *Agent) NSDs(projectID string) []nfvo.NSD {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []nfvo.NSD
	for key, nsd := range a.nsds {
		if strings.HasPrefix(key, projectID+"/") {
			out = append(out, nsd)
		}
	}
	return out
}

// Keys returns the keys of a project.
func (a *Agent) Keys(projectID string) []nfvo.Key {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]nfvo.Key(nil), a.keys[projectID]...)
}

func (a *Agent) nextID(prefix string) string {
	a.seq++
	return fmt.Sprintf("%s-%d", prefix, a.seq)
}

// enter records the call and returns the injected failure, if any.
// Callers hold a.mu.
func (a *Agent) enter(op string) error {
	a.calls = append(a.calls, op)
	return a.failures[op]
}

func (a *Agent) ListProjects(_ context.Context) ([]nfvo.Project, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("ListProjects"); err != nil {
		return nil, err
	}
	return append([]nfvo.Project(nil), a.projects...), nil
}

func (a *Agent) CreateProject(_ context.Context, project nfvo.Project) (*nfvo.Project, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CreateProject"); err != nil {
		return nil, err
	}
	project.ID = a.nextID("project")
	a.projects = append(a.projects, project)
	return &project, nil
}

func (a *Agent) DeleteProject(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("DeleteProject"); err != nil {
		return err
	}
	for i, p := range a.projects {
		if p.ID == id {
			a.projects = append(a.projects[:i], a.projects[i+1:]...)
			return nil
		}
	}
	return NotFound("project", id)
}

func (a *Agent) ListUsers(_ context.Context, projectID string) ([]nfvo.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("ListUsers"); err != nil {
		return nil, err
	}
	return append([]nfvo.User(nil), a.users[projectID]...), nil
}

func (a *Agent) CreateUser(_ context.Context, projectID string, user nfvo.User) (*nfvo.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CreateUser"); err != nil {
		return nil, err
	}
	user.ID = a.nextID("user")
	a.users[projectID] = append(a.users[projectID], user)
	return &user, nil
}

func (a *Agent) DeleteUser(_ context.Context, projectID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("DeleteUser"); err != nil {
		return err
	}
	users := a.users[projectID]
	for i, u := range users {
		if u.ID == id {
			a.users[projectID] = append(users[:i], users[i+1:]...)
			return nil
		}
	}
	return NotFound("user", id)
}

func (a *Agent) ListVimInstances(_ context.Context, projectID string) ([]nfvo.VimInstance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("ListVimInstances"); err != nil {
		return nil, err
	}
	return append([]nfvo.VimInstance(nil), a.vims[projectID]...), nil
}

func (a *Agent) CreateVimInstance(_ context.Context, projectID string, vim nfvo.VimInstance) (*nfvo.VimInstance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CreateVimInstance"); err != nil {
		return nil, err
	}
	vim.ID = a.nextID("vim")
	a.vims[projectID] = append(a.vims[projectID], vim)
	return &vim, nil
}

func (a *Agent) DeleteVimInstance(_ context.Context, projectID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("DeleteVimInstance"); err != nil {
		return err
	}
	vims := a.vims[projectID]
	for i, v := range vims {
		if v.ID == id {
			a.vims[projectID] = append(vims[:i], vims[i+1:]...)
			return nil
		}
	}
	return NotFound("vim instance", id)
}

func (a *Agent) ListKeys(_ context.Context, projectID string) ([]nfvo.Key, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("ListKeys"); err != nil {
		return nil, err
	}
	return append([]nfvo.Key(nil), a.keys[projectID]...), nil
}

func (a *Agent) CreateKey(_ context.Context, projectID string, key nfvo.Key) (*nfvo.Key, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CreateKey"); err != nil {
		return nil, err
	}
	for _, k := range a.keys[projectID] {
		if k.Name == key.Name {
			return nil, &nfvo.APIError{StatusCode: http.StatusConflict, Message: "key " + key.Name + " already exists"}
		}
	}
	key.ID = a.nextID("key")
	a.keys[projectID] = append(a.keys[projectID], key)
	return &key, nil
}

func (a *Agent) DeleteKey(_ context.Context, projectID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("DeleteKey"); err != nil {
		return err
	}
	keys := a.keys[projectID]
	for i, k := range keys {
		if k.ID == id {
			a.keys[projectID] = append(keys[:i], keys[i+1:]...)
			return nil
		}
	}
	return NotFound("key", id)
}

func (a *Agent) UploadPackage(_ context.Context, projectID, path string) (*nfvo.VNFD, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("UploadPackage"); err != nil {
		return nil, err
	}
	name := nfvo.PackageName(path)
	vnfd := nfvo.VNFD{
		ID:   a.nextID("vnfd"),
		Name: name,
		VDU:  []nfvo.VDU{{Name: name}},
	}
	a.packages[vnfd.ID] = vnfd
	return &vnfd, nil
}

func (a *Agent) ListNSDs(_ context.Context, projectID string) ([]nfvo.NSD, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("ListNSDs"); err != nil {
		return nil, err
	}
	var out []nfvo.NSD
	for key, nsd := range a.nsds {
		if strings.HasPrefix(key, projectID+"/") {
			out = append(out, nsd)
		}
	}
	return out, nil
}

func (a *Agent) GetNSD(_ context.Context, projectID, id string) (*nfvo.NSD, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("GetNSD"); err != nil {
		return nil, err
	}
	nsd, ok := a.nsds[projectID+"/"+id]
	if !ok {
		return nil, NotFound("nsd", id)
	}
	return &nsd, nil
}

func (a *Agent) CreateNSD(_ context.Context, projectID string, nsd nfvo.NSD) (*nfvo.NSD, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CreateNSD"); err != nil {
		return nil, err
	}
	nsd.ID = a.nextID("nsd")
	for i, ref := range nsd.VNFD {
		if full, ok := a.packages[ref.ID]; ok {
			nsd.VNFD[i] = full
		}
	}
	a.nsds[projectID+"/"+nsd.ID] = nsd
	return &nsd, nil
}

func (a *Agent) CreateNSDFromCSAR(_ context.Context, projectID, path string) (*nfvo.NSD, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CreateNSDFromCSAR"); err != nil {
		return nil, err
	}
	nsd, ok := a.CSARs[path]
	if !ok {
		return nil, &nfvo.APIError{StatusCode: http.StatusBadRequest, Message: "unknown csar " + path}
	}
	nsd.ID = a.nextID("nsd")
	a.nsds[projectID+"/"+nsd.ID] = nsd
	return &nsd, nil
}

func (a *Agent) DeleteNSD(_ context.Context, projectID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("DeleteNSD"); err != nil {
		return err
	}
	key := projectID + "/" + id
	if _, ok := a.nsds[key]; !ok {
		return NotFound("nsd", id)
	}
	delete(a.nsds, key)
	return nil
}

func (a *Agent) CreateNSR(_ context.Context, projectID, nsdID string, body nfvo.NSRBody) (*nfvo.NSR, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("CreateNSR"); err != nil {
		return nil, err
	}
	a.LastNSRBody = &body

	nsd, ok := a.nsds[projectID+"/"+nsdID]
	if !ok {
		return nil, NotFound("nsd", nsdID)
	}

	nsr := &nfvo.NSR{
		ID:                  a.nextID("nsr"),
		Name:                nsd.Name,
		Status:              "NULL",
		DescriptorReference: nsdID,
	}
	for _, vnfd := range nsd.VNFD {
		vnfr := nfvo.VNFR{ID: a.nextID("vnfr"), Name: vnfd.Name}
		for _, vdu := range vnfd.VDU {
			vnfr.VDU = append(vnfr.VDU, nfvo.VDU{
				Name:         vdu.Name,
				VNFCInstance: []nfvo.VNFCInstance{{Hostname: vdu.Name + "-" + a.nextID("host")}},
			})
		}
		nsr.VNFR = append(nsr.VNFR, vnfr)
	}
	a.nsrs[nsr.ID] = nsr

	out := *nsr
	return &out, nil
}

func (a *Agent) GetNSR(_ context.Context, _ string, id string) (*nfvo.NSR, error) {
	nsr, err := a.getNSR(id)
	if err == nil && a.AfterGetNSR != nil {
		a.AfterGetNSR(id)
	}
	return nsr, err
}

func (a *Agent) getNSR(id string) (*nfvo.NSR, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("GetNSR"); err != nil {
		return nil, err
	}
	if err := a.nsrFail[id]; err != nil {
		return nil, err
	}
	nsr, ok := a.nsrs[id]
	if !ok {
		return nil, NotFound("nsr", id)
	}
	if remaining, deleting := a.lingers[id]; deleting {
		if remaining <= 0 {
			delete(a.lingers, id)
			delete(a.nsrs, id)
			return nil, NotFound("nsr", id)
		}
		a.lingers[id] = remaining - 1
	}
	out := *nsr
	return &out, nil
}

func (a *Agent) DeleteNSR(_ context.Context, _ string, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enter("DeleteNSR"); err != nil {
		return err
	}
	if _, ok := a.nsrs[id]; !ok {
		return NotFound("nsr", id)
	}
	if a.LingerPolls > 0 {
		a.lingers[id] = a.LingerPolls
		return nil
	}
	delete(a.nsrs, id)
	return nil
}
