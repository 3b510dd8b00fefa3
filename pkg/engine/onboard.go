package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/softfire/nfv-manager/pkg/nfvo"
)

// UserRole is the role experimenters get in their own project.
const UserRole = "USER"

// TenantBinding is an owner's tenant on one testbed and the vim instance
// that lets the orchestrator deploy there.
type TenantBinding struct {
	Testbed  string
	TenantID string
	Vim      nfvo.VimInstance
}

// TenantProvisioner prepares an owner's tenants on the testbed clouds.
type TenantProvisioner interface {
	ProvisionTenants(ctx context.Context, owner string) ([]TenantBinding, error)
}

// Onboard prepares owner's orchestrator project, user account and vim
// instances. Every step finds before it creates, so Onboard may be
// repeated. It returns the tenant id per testbed.
func (m *Manager) Onboard(ctx context.Context, owner, password string) (map[string]string, error) {
	ctx = m.tel.WithContext(ctx)
	logger := m.logger.WithOwner(owner)

	project, err := m.conn.Admin().EnsureProject(ctx, nfvo.Project{
		Name:        owner,
		Description: "the project for user " + owner,
	})
	if err != nil {
		return nil, NewPermanentError("failed to create project", err).WithResource(owner).WithOperation("onboard")
	}
	logger.WithField("project_id", project.ID).Info("Project ready")

	client, err := m.session(ctx, owner)
	if err != nil {
		return nil, err
	}

	if _, err := client.EnsureUser(ctx, nfvo.User{
		Username: owner,
		Password: password,
		Enabled:  true,
		Roles:    []nfvo.Role{{Role: UserRole, Project: owner}},
	}); err != nil {
		return nil, NewPermanentError("failed to create user", err).WithResource(owner).WithOperation("onboard")
	}

	tenants := make(map[string]string)
	if m.tenants == nil {
		logger.Warn("No tenant provisioner configured, skipping vim instances")
		return tenants, nil
	}

	bindings, err := m.tenants.ProvisionTenants(ctx, owner)
	if err != nil {
		return nil, NewTransientError("failed to provision testbed tenants", err).WithResource(owner)
	}
	for _, b := range bindings {
		vim := b.Vim
		if vim.Name == "" {
			vim.Name = VimInstanceName(b.Testbed)
		}
		if _, err := client.EnsureVimInstance(ctx, vim); err != nil {
			return nil, NewPermanentError("failed to register vim instance", err).
				WithResource(owner).
				WithOperation("onboard").
				WithDetail("testbed", b.Testbed)
		}
		testbed, _ := CanonicalTestbed(b.Testbed)
		tenants[testbed] = b.TenantID
	}

	logger.Infof("Onboarded on %d testbeds", len(tenants))
	return tenants, nil
}

// Offboard deletes owner's vim instances, user account and project.
// An owner without a project is already offboarded.
func (m *Manager) Offboard(ctx context.Context, owner string) error {
	ctx = m.tel.WithContext(ctx)

	client, err := m.conn.Session(ctx, owner)
	if errors.Is(err, nfvo.ErrProjectNotFound) {
		return nil
	}
	if err != nil {
		return NewTransientError("failed to open orchestrator session", err).WithResource(owner)
	}

	var errs []error
	vims, err := client.ListVimInstances(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, vim := range vims {
		if err := client.DeleteVimInstance(ctx, vim.ID); err != nil && !nfvo.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("delete vim instance %s: %w", vim.Name, err))
		}
	}

	user, err := client.FindUser(ctx, owner)
	switch {
	case err != nil:
		errs = append(errs, err)
	case user != nil:
		if err := client.DeleteUser(ctx, user.ID); err != nil && !nfvo.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("delete user %s: %w", owner, err))
		}
	}

	if err := m.conn.Admin().DeleteProject(ctx, client.ProjectID()); err != nil && !nfvo.IsNotFound(err) {
		errs = append(errs, fmt.Errorf("delete project %s: %w", owner, err))
	}

	if len(errs) > 0 {
		return NewDeleteError("failed to offboard owner", errors.Join(errs...)).WithResource(owner)
	}
	m.logger.WithOwner(owner).Info("Owner offboarded")
	return nil
}

// TestbedCredentials is one entry of the testbed credentials file.
type TestbedCredentials struct {
	AuthURL    string `yaml:"auth_url" validate:"required,url"`
	Username   string `yaml:"username" validate:"required"`
	Password   string `yaml:"password"`
	TenantName string `yaml:"admin_tenant_name"`
	TenantID   string `yaml:"admin_project_id" validate:"required_without=TenantName"`
	Type       string `yaml:"type"`
}

// StaticTenants binds every owner to the tenants listed in the testbed
// credentials file. The tenants themselves are managed on the cloud side.
type StaticTenants map[string]TestbedCredentials

// LoadStaticTenants reads a JSON or YAML credentials file keyed by testbed.
func LoadStaticTenants(path string) (StaticTenants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials %s: %w", path, err)
	}

	var tenants StaticTenants
	if err := yaml.Unmarshal(data, &tenants); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}

	validate := validator.New()
	for testbed, creds := range tenants {
		if err := validate.Struct(creds); err != nil {
			return nil, fmt.Errorf("invalid credentials for testbed %s: %w", testbed, err)
		}
	}

	log.Debug().Str("path", path).Int("testbeds", len(tenants)).Msg("Loaded testbed credentials")
	return tenants, nil
}

// ProvisionTenants returns one binding per testbed, in testbed order.
func (s StaticTenants) ProvisionTenants(_ context.Context, _ string) ([]TenantBinding, error) {
	testbeds := make([]string, 0, len(s))
	for name := range s {
		testbeds = append(testbeds, name)
	}
	sort.Strings(testbeds)

	bindings := make([]TenantBinding, 0, len(testbeds))
	for _, testbed := range testbeds {
		creds := s[testbed]
		tenant := creds.TenantID
		if tenant == "" {
			tenant = creds.TenantName
		}
		vimType := creds.Type
		if vimType == "" {
			vimType = "openstack"
		}
		bindings = append(bindings, TenantBinding{
			Testbed:  testbed,
			TenantID: tenant,
			Vim: nfvo.VimInstance{
				Name:     VimInstanceName(testbed),
				AuthURL:  creds.AuthURL,
				Tenant:   tenant,
				Username: creds.Username,
				Password: creds.Password,
				KeyPair:  OperatorKeyName,
				Type:     vimType,
			},
		})
	}
	return bindings, nil
}
