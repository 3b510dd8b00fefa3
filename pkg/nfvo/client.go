package nfvo

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/softfire/nfv-manager/pkg/telemetry"
)

// Connector opens orchestrator sessions. There is no process-wide client:
// callers open one session per tenant and operation.
type Connector struct {
	agent Agent
}

// NewConnector creates a connector over agent.
func NewConnector(agent Agent) *Connector {
	return &Connector{agent: agent}
}

// Admin returns a session that is not scoped to any project. It is used to
// manage projects themselves.
func (c *Connector) Admin() *Client {
	return &Client{agent: c.agent}
}

// Session resolves the project named projectName once and returns a client
// scoped to it. It fails with ErrProjectNotFound if no such project exists.
func (c *Connector) Session(ctx context.Context, projectName string) (*Client, error) {
	var projects []Project
	err := telemetry.RecordOrchestratorOperation(ctx, "list_projects", func(ctx context.Context) error {
		var err error
		projects, err = c.agent.ListProjects(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve project %s: %w", projectName, err)
	}

	for _, p := range projects {
		if p.Name == projectName {
			return &Client{agent: c.agent, projectID: p.ID}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectName)
}

// Client is the facade over one project. Find-or-create methods are
// idempotent by entity name.
type Client struct {
	agent     Agent
	projectID string
}

// ProjectID returns the id of the project the client is scoped to.
func (c *Client) ProjectID() string {
	return c.projectID
}

func (c *Client) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return telemetry.RecordOrchestratorOperation(ctx, operation, fn)
}

// EnsureProject returns the project with project.Name, creating it if needed.
func (c *Client) EnsureProject(ctx context.Context, project Project) (*Project, error) {
	var projects []Project
	err := c.call(ctx, "list_projects", func(ctx context.Context) error {
		var err error
		projects, err = c.agent.ListProjects(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	for i := range projects {
		if projects[i].Name == project.Name {
			return &projects[i], nil
		}
	}

	var created *Project
	err = c.call(ctx, "create_project", func(ctx context.Context) error {
		var err error
		created, err = c.agent.CreateProject(ctx, project)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create project %s: %w", project.Name, err)
	}
	return created, nil
}

// DeleteProject deletes the project with the given id.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.call(ctx, "delete_project", func(ctx context.Context) error {
		return c.agent.DeleteProject(ctx, id)
	})
}

// EnsureUser returns the user with user.Username, creating it if needed.
func (c *Client) EnsureUser(ctx context.Context, user User) (*User, error) {
	found, err := c.FindUser(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}

	var created *User
	err = c.call(ctx, "create_user", func(ctx context.Context) error {
		var err error
		created, err = c.agent.CreateUser(ctx, c.projectID, user)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", user.Username, err)
	}
	return created, nil
}

// FindUser returns the user named username, or nil if there is none.
func (c *Client) FindUser(ctx context.Context, username string) (*User, error) {
	var users []User
	err := c.call(ctx, "list_users", func(ctx context.Context) error {
		var err error
		users, err = c.agent.ListUsers(ctx, c.projectID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

// DeleteUser deletes the user with the given id.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.call(ctx, "delete_user", func(ctx context.Context) error {
		return c.agent.DeleteUser(ctx, c.projectID, id)
	})
}

// EnsureVimInstance returns the vim instance named vim.Name, creating it if needed.
func (c *Client) EnsureVimInstance(ctx context.Context, vim VimInstance) (*VimInstance, error) {
	vims, err := c.ListVimInstances(ctx)
	if err != nil {
		return nil, err
	}
	for i := range vims {
		if vims[i].Name == vim.Name {
			return &vims[i], nil
		}
	}

	var created *VimInstance
	err = c.call(ctx, "create_vim_instance", func(ctx context.Context) error {
		var err error
		created, err = c.agent.CreateVimInstance(ctx, c.projectID, vim)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create vim instance %s: %w", vim.Name, err)
	}
	return created, nil
}

// ListVimInstances lists the project's vim instances.
func (c *Client) ListVimInstances(ctx context.Context) ([]VimInstance, error) {
	var vims []VimInstance
	err := c.call(ctx, "list_vim_instances", func(ctx context.Context) error {
		var err error
		vims, err = c.agent.ListVimInstances(ctx, c.projectID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list vim instances: %w", err)
	}
	return vims, nil
}

// DeleteVimInstance deletes the vim instance with the given id.
func (c *Client) DeleteVimInstance(ctx context.Context, id string) error {
	return c.call(ctx, "delete_vim_instance", func(ctx context.Context) error {
		return c.agent.DeleteVimInstance(ctx, c.projectID, id)
	})
}

// VimResources lists the images, networks and flavours of every vim
// instance. The testbed of a resource is the suffix of its vim instance
// name after the last '-', or the whole name when there is no '-'.
func (c *Client) VimResources(ctx context.Context) ([]VimResource, error) {
	vims, err := c.ListVimInstances(ctx)
	if err != nil {
		return nil, err
	}

	var images, networks, flavors []VimResource
	for _, vim := range vims {
		testbed := vim.Name
		if i := strings.LastIndex(vim.Name, "-"); i >= 0 {
			testbed = vim.Name[i+1:]
		}
		for _, img := range vim.Images {
			images = append(images, VimResource{Kind: ResourceImage, Testbed: testbed, Name: img.Name})
		}
		for _, net := range vim.Networks {
			networks = append(networks, VimResource{Kind: ResourceNetwork, Testbed: testbed, Name: net.Name})
		}
		for _, fl := range vim.Flavours {
			flavors = append(flavors, VimResource{Kind: ResourceFlavor, Testbed: testbed, Name: fl.FlavourKey})
		}
	}

	resources := make([]VimResource, 0, len(images)+len(networks)+len(flavors))
	resources = append(resources, images...)
	resources = append(resources, networks...)
	resources = append(resources, flavors...)
	return resources, nil
}

// ImportKey registers publicKey under name, replacing any key with the same name.
func (c *Client) ImportKey(ctx context.Context, name, publicKey string) error {
	var keys []Key
	err := c.call(ctx, "list_keys", func(ctx context.Context) error {
		var err error
		keys, err = c.agent.ListKeys(ctx, c.projectID)
		return err
	})
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	for _, k := range keys {
		if k.Name != name {
			continue
		}
		err := c.call(ctx, "delete_key", func(ctx context.Context) error {
			return c.agent.DeleteKey(ctx, c.projectID, k.ID)
		})
		if err != nil {
			return fmt.Errorf("delete key %s: %w", name, err)
		}
		break
	}

	err = c.call(ctx, "create_key", func(ctx context.Context) error {
		_, err := c.agent.CreateKey(ctx, c.projectID, Key{
			Name:      name,
			ProjectID: c.projectID,
			PublicKey: publicKey,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("create key %s: %w", name, err)
	}
	return nil
}

// PackageName derives the component name of a package file: the file name
// up to its first '.'.
func PackageName(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// UploadPackage uploads a component package and returns the component
// descriptor id. If the upload fails and a component named name already
// exists in one of the project's service descriptors, its id is returned.
func (c *Client) UploadPackage(ctx context.Context, path, name string) (string, error) {
	var vnfd *VNFD
	uploadErr := c.call(ctx, "upload_package", func(ctx context.Context) error {
		var err error
		vnfd, err = c.agent.UploadPackage(ctx, c.projectID, path)
		return err
	})
	if uploadErr == nil {
		return vnfd.ID, nil
	}
	if name == "" {
		return "", fmt.Errorf("upload package %s: %w", path, uploadErr)
	}

	nsds, err := c.ListNSDs(ctx)
	if err != nil {
		return "", fmt.Errorf("upload package %s: %w", path, uploadErr)
	}
	for _, nsd := range nsds {
		for _, existing := range nsd.VNFD {
			if existing.Name == name {
				return existing.ID, nil
			}
		}
	}
	return "", fmt.Errorf("upload package %s: %w", path, uploadErr)
}

// ListNSDs lists the project's service descriptors.
func (c *Client) ListNSDs(ctx context.Context) ([]NSD, error) {
	var nsds []NSD
	err := c.call(ctx, "list_nsds", func(ctx context.Context) error {
		var err error
		nsds, err = c.agent.ListNSDs(ctx, c.projectID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list nsds: %w", err)
	}
	return nsds, nil
}

// CreateNSD always creates a new service descriptor, even when one with the
// same name exists. Each record owns its descriptor and deletes it on release.
func (c *Client) CreateNSD(ctx context.Context, nsd NSD) (*NSD, error) {
	var created *NSD
	err := c.call(ctx, "create_nsd", func(ctx context.Context) error {
		var err error
		created, err = c.agent.CreateNSD(ctx, c.projectID, nsd)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create nsd %s: %w", nsd.Name, err)
	}
	return created, nil
}

// CreateNSDFromCSAR onboards a CSAR archive.
func (c *Client) CreateNSDFromCSAR(ctx context.Context, path string) (*NSD, error) {
	var created *NSD
	err := c.call(ctx, "create_nsd_from_csar", func(ctx context.Context) error {
		var err error
		created, err = c.agent.CreateNSDFromCSAR(ctx, c.projectID, path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create nsd from %s: %w", path, err)
	}
	return created, nil
}

// GetNSD fetches a service descriptor.
func (c *Client) GetNSD(ctx context.Context, id string) (*NSD, error) {
	var nsd *NSD
	err := c.call(ctx, "get_nsd", func(ctx context.Context) error {
		var err error
		nsd, err = c.agent.GetNSD(ctx, c.projectID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get nsd %s: %w", id, err)
	}
	return nsd, nil
}

// DeleteNSD deletes a service descriptor.
func (c *Client) DeleteNSD(ctx context.Context, id string) error {
	err := c.call(ctx, "delete_nsd", func(ctx context.Context) error {
		return c.agent.DeleteNSD(ctx, c.projectID, id)
	})
	if err != nil {
		return fmt.Errorf("delete nsd %s: %w", id, err)
	}
	return nil
}

// CreateNSR instantiates the descriptor nsdID.
func (c *Client) CreateNSR(ctx context.Context, nsdID string, body NSRBody) (*NSR, error) {
	var nsr *NSR
	err := c.call(ctx, "create_nsr", func(ctx context.Context) error {
		var err error
		nsr, err = c.agent.CreateNSR(ctx, c.projectID, nsdID, body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create nsr from %s: %w", nsdID, err)
	}
	return nsr, nil
}

// GetNSR fetches a service record.
func (c *Client) GetNSR(ctx context.Context, id string) (*NSR, error) {
	var nsr *NSR
	err := c.call(ctx, "get_nsr", func(ctx context.Context) error {
		var err error
		nsr, err = c.agent.GetNSR(ctx, c.projectID, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get nsr %s: %w", id, err)
	}
	return nsr, nil
}

// DeleteNSR deletes a service record.
func (c *Client) DeleteNSR(ctx context.Context, id string) error {
	err := c.call(ctx, "delete_nsr", func(ctx context.Context) error {
		return c.agent.DeleteNSR(ctx, c.projectID, id)
	})
	if err != nil {
		return fmt.Errorf("delete nsr %s: %w", id, err)
	}
	return nil
}
