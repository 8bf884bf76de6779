// Package relay exposes incremental field extraction over HTTP.
//
// A Handler accepts an instruction payload, forwards it to an upstream
// Source and streams the resulting field events back as NDJSON:
//
//	h := &relay.Handler{
//	    Source:        upstream.NewClient(url, upstream.WithAPIKey(key)),
//	    Authenticator: relay.StaticTokens(token),
//	}
//	http.Handle("/v1/generate", h)
//
// A Client consumes such an endpoint:
//
//	gen, err := relay.NewClient(url).Generate(ctx, instruction, token, nil)
package relay
