// Package validate implements the guardrail validation client used by editor
// hosts to request on-demand correctness checks from a remote guardrail
// service and reconcile the results across presentation surfaces.
//
// The package owns connection lifecycle, request orchestration, result
// caching, and the translation of server findings into normalized violations.
// It does not own the validation rules (those live behind the service API)
// and it does not render anything: presentation surfaces subscribe to the
// broadcaster and receive structured updates.
//
// # Architecture
//
//   - Client: high-level facade wiring the components together
//   - ConnectionManager: reachability/auth state toward the service
//   - Dispatcher: request identity, single-flight per resource, retry
//   - ResultCache: fingerprint-keyed cached violations
//   - Broadcaster: ordered fan-out of state to subscribed surfaces
//   - Registry: open-resource tracking fed by host lifecycle events
//
// # Quick Start
//
//	client := validate.NewClient(opts)
//	sub := client.Subscribe(validate.SubscriberFunc(func(u validate.Update) {
//	    // update inline markers / status indicator
//	}))
//	defer sub.Unsubscribe()
//
//	client.OpenResource("a.py", "x=1")
//	result, err := client.ValidateFile(ctx, "a.py")
//
// # Wire Contract
//
// The service speaks JSON over HTTP: POST /validate with
// {projectSlug, resourceId, content, range?} and GET /health for probes.
// Positions on the wire use 1-based lines and 0-based UTF-16 column offsets;
// see protocol.go. API keys travel as a bearer token.
package validate
