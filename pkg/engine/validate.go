package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/ssh"

	"github.com/softfire/nfv-manager/pkg/policy"
)

// Validate checks a deployment request for owner without calling the
// orchestrator. Every failure is a validation error.
func (m *Manager) Validate(ctx context.Context, owner string, req *DeploymentRequest) error {
	if req == nil {
		return NewValidationError("empty request", nil)
	}
	props := req.Properties
	logger := m.logger.WithOwner(owner).WithResourceID(props.ResourceID)

	if err := m.validator.Struct(props); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return NewValidationError(fmt.Sprintf("%s is %s", verrs[0].Field(), verrs[0].Tag()), nil).
				WithOperation("validate")
		}
		return NewValidationError("invalid request", err).WithOperation("validate")
	}

	entry, inCatalog := m.catalog.Get(props.ResourceID)
	if !inCatalog {
		if !m.packages.HasUploadedArchive(owner, props.ResourceID) && props.FileName == "" {
			return NewValidationError(
				fmt.Sprintf("resource id %s not in the available ones %v and no CSAR file provided",
					props.ResourceID, m.catalog.IDs()), nil).
				WithResource(props.ResourceID).
				WithCode(ErrCodeUnknownResource)
		}
	} else {
		for _, unit := range props.Testbeds.Keys() {
			if isWildcard(unit) || entry.HasUnitType(unit) {
				continue
			}
			return NewValidationError(
				fmt.Sprintf("testbeds key %s is neither ANY nor one of %v", unit, entry.VNFTypes), nil).
				WithResource(props.ResourceID).
				WithCode(ErrCodeUnknownTestbed)
		}
	}

	if props.SSHPubKey != "" {
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(props.SSHPubKey)); err != nil {
			return NewValidationError("public key is not in authorized_keys format", err).
				WithResource(props.ResourceID).
				WithCode(ErrCodeInvalidKey)
		}
	}

	if m.policies == nil {
		return nil
	}

	input := &policy.Input{
		Request: &policy.RequestInput{
			ResourceID:   props.ResourceID,
			Owner:        owner,
			Catalog:      inCatalog,
			UnitTypes:    entry.VNFTypes,
			Testbeds:     props.Testbeds,
			FileName:     props.FileName,
			HasPublicKey: props.SSHPubKey != "",
			MonitoringIP: props.MonitoringIP,
		},
		Context: &policy.Context{
			Operation:     "provide",
			Timestamp:     time.Now(),
			KnownTestbeds: KnownTestbeds(),
		},
	}

	result, err := m.policies.Evaluate(ctx, input)
	if err != nil {
		return NewValidationError("policy evaluation failed", err).WithResource(props.ResourceID)
	}
	for _, w := range result.Warnings {
		logger.WithField("policy", w.Policy).Warn(w.Message)
	}
	if !result.Allowed {
		return NewValidationError(strings.Join(result.Messages(), "; "), nil).
			WithResource(props.ResourceID).
			WithCode(ErrCodePolicyDenied).
			WithDetail("violations", result.Violations)
	}
	return nil
}
