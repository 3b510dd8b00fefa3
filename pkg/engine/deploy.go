package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/softfire/nfv-manager/pkg/catalog"
	"github.com/softfire/nfv-manager/pkg/nfvo"
	"github.com/softfire/nfv-manager/pkg/stores"
	"github.com/softfire/nfv-manager/pkg/telemetry"
)

// Deployment branches.
const (
	BranchCatalog = "catalog"
	BranchUser    = "user"
)

// Fixed attributes of descriptors assembled from catalog packages.
const (
	CatalogNSDVersion = "softfire_version"
	InternalLinkName  = "softfire-internal"
	userArchiveSuffix = ".csar"
)

// Provide deploys the request for owner and returns the created record,
// serialized. The record is tracked once the orchestrator accepted it.
func (m *Manager) Provide(ctx context.Context, owner string, req *DeploymentRequest) (_ []string, err error) {
	if req == nil {
		return nil, NewValidationError("empty request", nil)
	}
	props := req.Properties
	requestID := uuid.New().String()

	ctx = m.tel.WithContext(ctx)
	op := m.tel.StartOperation(ctx, "provide",
		telemetry.AttrOwner.String(owner),
		telemetry.AttrResourceID.String(props.ResourceID),
	)
	defer func() { op.End(err) }()
	ctx = op.Ctx

	logger := m.logger.WithOwner(owner).WithResourceID(props.ResourceID).WithField("request_id", requestID)
	logger.Info("Deploying resource")

	branch := BranchUser
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			m.tel.Metrics.RecordError(ClassOf(err))
			_ = m.tel.Events.PublishDeployFailed(owner, props.ResourceID, err.Error())
		}
		m.tel.Metrics.RecordDeployment(branch, outcome, op.Timer.Duration())
	}()

	client, err := m.session(ctx, owner)
	if err != nil {
		return nil, err
	}

	keys, err := m.importKeys(ctx, client, props)
	if err != nil {
		return nil, err
	}

	var nsd *nfvo.NSD
	var units []string
	if entry, ok := m.catalog.Get(props.ResourceID); ok {
		if _, exists := m.packages.CatalogDir(props.ResourceID); exists {
			branch = BranchCatalog
			nsd, err = m.createCatalogNSD(ctx, client, owner, props.ResourceID)
			units = entry.VNFTypes
		}
	}
	if branch == BranchUser {
		nsd, err = m.createUserNSD(ctx, client, owner, props)
		if nsd != nil {
			units = nsd.UnitNames()
		}
	}
	if err != nil {
		return nil, err
	}
	op.Span.SetAttributes(telemetry.AttrBranch.String(branch))

	body := nfvo.NSRBody{
		VDUVimInstances: Placement(units, props.Testbeds),
		Keys:            keys,
		MonitoringIP:    props.MonitoringIP,
	}
	logger.WithField("placement", body.VDUVimInstances).Debug("Creating record")

	nsr, err := client.CreateNSR(ctx, nsd.ID, body)
	if err != nil {
		if derr := client.DeleteNSD(ctx, nsd.ID); derr != nil {
			logger.WithError(derr).WithField("nsd_id", nsd.ID).Warn("Failed to remove descriptor after record creation failed")
		}
		return nil, NewPermanentError("failed to create record", err).
			WithResource(props.ResourceID).
			WithOperation("create_nsr").
			WithCode(ErrCodeOrchestrator)
	}

	record := &stores.TrackedRecord{
		ID:           nsr.ID,
		Owner:        owner,
		Status:       nsr.Status,
		LogLocations: nsr.LogLocations(),
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return nil, NewTransientError("failed to track record", err).WithResource(nsr.ID)
	}

	details, _ := json.Marshal(map[string]string{
		"resource_id": props.ResourceID,
		"branch":      branch,
		"request_id":  requestID,
	})
	m.audit(ctx, stores.AuditRecordDeployed, owner, nsr.ID, string(details))
	_ = m.tel.Events.PublishRecordDeployed(owner, nsr.ID, nsr.Status)

	logger.WithRecordID(nsr.ID).WithField("branch", branch).Info("Record created")
	return []string{nsr.Serialize()}, nil
}

// importKeys imports the request's key under the resource id and the
// operator key under OperatorKeyName, replacing same-named keys. It
// returns the imported key names.
func (m *Manager) importKeys(ctx context.Context, client *nfvo.Client, props RequestProperties) ([]string, error) {
	keys := []string{}
	if props.SSHPubKey != "" {
		if err := client.ImportKey(ctx, props.ResourceID, props.SSHPubKey); err != nil {
			return nil, NewPermanentError("failed to import public key", err).
				WithResource(props.ResourceID).
				WithOperation("import_key")
		}
		keys = append(keys, props.ResourceID)
	}
	if m.opKey != "" {
		if err := client.ImportKey(ctx, OperatorKeyName, m.opKey); err != nil {
			return nil, NewPermanentError("failed to import operator key", err).
				WithResource(props.ResourceID).
				WithOperation("import_key")
		}
		keys = append(keys, OperatorKeyName)
	}
	return keys, nil
}

// createCatalogNSD uploads every file of the catalog package directory and
// assembles a descriptor from the resulting components.
func (m *Manager) createCatalogNSD(ctx context.Context, client *nfvo.Client, owner, resourceID string) (*nfvo.NSD, error) {
	files, err := m.packages.CatalogFiles(resourceID)
	if err != nil {
		return nil, NewMissingResourceError("failed to read package directory", err).WithResource(resourceID)
	}

	vnfds := []nfvo.VNFD{}
	for _, file := range files {
		id, err := client.UploadPackage(ctx, file, nfvo.PackageName(file))
		if err != nil {
			return nil, NewPermanentError("failed to upload package", err).
				WithResource(resourceID).
				WithOperation("upload_package").
				WithDetail("file", file)
		}
		vnfds = append(vnfds, nfvo.VNFD{ID: id})
	}

	nsd, err := client.CreateNSD(ctx, nfvo.NSD{
		Name:    resourceID,
		Version: CatalogNSDVersion,
		Vendor:  owner,
		VNFD:    vnfds,
		VLD:     []nfvo.VirtualLink{{Name: InternalLinkName}},
	})
	if err != nil {
		return nil, NewPermanentError("failed to create descriptor", err).
			WithResource(resourceID).
			WithOperation("create_nsd")
	}
	return nsd, nil
}

// createUserNSD onboards the owner's uploaded archive.
func (m *Manager) createUserNSD(ctx context.Context, client *nfvo.Client, owner string, props RequestProperties) (*nfvo.NSD, error) {
	fileName := props.FileName
	if fileName == "" {
		fileName = props.ResourceID + userArchiveSuffix
	}
	path, ok := m.packages.UserArchive(owner, fileName)
	if !ok {
		return nil, NewMissingResourceError(fmt.Sprintf("package archive %s is outside the experimenter's files", fileName), nil).
			WithResource(props.ResourceID).
			WithCode(ErrCodeMissingFile)
	}
	if !catalog.Exists(path) {
		return nil, NewMissingResourceError(fmt.Sprintf("package archive %s not found", fileName), nil).
			WithResource(props.ResourceID).
			WithCode(ErrCodeMissingFile).
			WithDetail("path", path)
	}

	nsd, err := client.CreateNSDFromCSAR(ctx, path)
	if err != nil {
		return nil, NewPermanentError("failed to onboard package archive", err).
			WithResource(props.ResourceID).
			WithOperation("create_nsd_from_csar")
	}
	return nsd, nil
}
