// Package ndjson carries field events over newline-delimited JSON, one event
// object per line:
//
//	{"type":"field","field":"title","value":"Soup"}
//	{"type":"field","field":"tags","value":["veg"]}
//	{"type":"complete"}
//
// Encoder writes and flushes each event as soon as it is produced. Consume
// reads a stream back into an Accumulator:
//
//	acc, err := ndjson.Consume(ctx, resp.Body, func(evt fieldx.Event) {
//	    fmt.Println(evt)
//	})
//	if se, ok := ndjson.AsStreamError(err); ok {
//	    log.Printf("generation failed: %s", se.Message)
//	}
//	record := acc.Record()
package ndjson
