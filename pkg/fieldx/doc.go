// Package fieldx extracts top-level fields from a JSON object while the text
// of that object is still being generated.
//
// # Events
//
// An Extractor turns text chunks into Events:
//   - Field(name, value): a top-level field whose value is syntactically
//     complete and differs from the last value reported for that name
//   - Complete: the end of the record, emitted once by Finalize
//   - Error(message): the upstream signaled a failure, emitted by Abort
//
// Partial strings, lists or objects are never reported. A value that changes
// between two complete objects (for example a description that grows across
// regenerations) is reported again; a value parsed again unchanged is not.
//
// # Usage
//
//	x := fieldx.NewExtractor()
//	for delta := range deltas {
//	    for _, evt := range x.ProcessChunk(delta) {
//	        send(evt)
//	    }
//	}
//	for _, evt := range x.Finalize() {
//	    send(evt)
//	}
package fieldx
