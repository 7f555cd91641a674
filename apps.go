package fdc3

import (
	"context"

	"github.com/robmoffat/fdc3-go/envelope"
)

// Open launches an application, optionally passing it an initial context,
// and returns the identity of the new instance.
func (d *DesktopAgent) Open(ctx context.Context, app envelope.AppIdentifier, c *Context) (*envelope.AppIdentifier, error) {
	appPayload, err := encode(app)
	if err != nil {
		return nil, err
	}
	payload := envelope.Payload{"app": appPayload}
	if c != nil {
		ctxPayload, err := encode(*c)
		if err != nil {
			return nil, err
		}
		payload["context"] = ctxPayload
	}
	req := envelope.NewRequest(envelope.KindOpenRequest, payload)
	resp, err := d.engine.Exchange(ctx, req, envelope.KindOpenResponse, d.timeout)
	if err != nil {
		return nil, err
	}
	var opened envelope.AppIdentifier
	if err := decode(resp.Payload["appIdentifier"], &opened); err != nil {
		return nil, err
	}
	return &opened, nil
}

// FindInstances lists the running instances of an application.
func (d *DesktopAgent) FindInstances(ctx context.Context, app envelope.AppIdentifier) ([]envelope.AppIdentifier, error) {
	appPayload, err := encode(app)
	if err != nil {
		return nil, err
	}
	req := envelope.NewRequest(envelope.KindFindInstancesRequest, envelope.Payload{"app": appPayload})
	resp, err := d.engine.Exchange(ctx, req, envelope.KindFindInstancesResponse, d.timeout)
	if err != nil {
		return nil, err
	}
	var instances []envelope.AppIdentifier
	if err := decode(resp.Payload["appIdentifiers"], &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// GetAppMetadata fetches directory metadata for an application.
func (d *DesktopAgent) GetAppMetadata(ctx context.Context, app envelope.AppIdentifier) (*AppMetadata, error) {
	appPayload, err := encode(app)
	if err != nil {
		return nil, err
	}
	req := envelope.NewRequest(envelope.KindGetAppMetadataRequest, envelope.Payload{"app": appPayload})
	resp, err := d.engine.Exchange(ctx, req, envelope.KindGetAppMetadataResponse, d.timeout)
	if err != nil {
		return nil, err
	}
	var meta AppMetadata
	if err := decode(resp.Payload["appMetadata"], &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
