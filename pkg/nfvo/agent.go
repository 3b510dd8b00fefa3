package nfvo

import "context"

// Agent is the raw orchestrator API: one method per remote call, no
// find-or-create logic. Project-scoped calls take the project id explicitly.
type Agent interface {
	ListProjects(ctx context.Context) ([]Project, error)
	CreateProject(ctx context.Context, project Project) (*Project, error)
	DeleteProject(ctx context.Context, id string) error

	ListUsers(ctx context.Context, projectID string) ([]User, error)
	CreateUser(ctx context.Context, projectID string, user User) (*User, error)
	DeleteUser(ctx context.Context, projectID, id string) error

	ListVimInstances(ctx context.Context, projectID string) ([]VimInstance, error)
	CreateVimInstance(ctx context.Context, projectID string, vim VimInstance) (*VimInstance, error)
	DeleteVimInstance(ctx context.Context, projectID, id string) error

	ListKeys(ctx context.Context, projectID string) ([]Key, error)
	CreateKey(ctx context.Context, projectID string, key Key) (*Key, error)
	DeleteKey(ctx context.Context, projectID, id string) error

	// UploadPackage uploads a component package file and returns the
	// component descriptor it produced.
	UploadPackage(ctx context.Context, projectID, path string) (*VNFD, error)

	ListNSDs(ctx context.Context, projectID string) ([]NSD, error)
	GetNSD(ctx context.Context, projectID, id string) (*NSD, error)
	CreateNSD(ctx context.Context, projectID string, nsd NSD) (*NSD, error)
	CreateNSDFromCSAR(ctx context.Context, projectID, path string) (*NSD, error)
	DeleteNSD(ctx context.Context, projectID, id string) error

	CreateNSR(ctx context.Context, projectID, nsdID string, body NSRBody) (*NSR, error)
	GetNSR(ctx context.Context, projectID, id string) (*NSR, error)
	DeleteNSR(ctx context.Context, projectID, id string) error
}
