// Package instruction loads, parses and validates aeon.instructions process
// documents: the declared tasks, the entry point, the named flows, document
// references and expected files.
//
// Parsing dispatches on the file extension through a small parser registry
// (JSON and YAML built in). Validation rejects duplicate task and step ids
// and enforces path containment: every path in a document is relative to the
// installation root, with absolute paths and ".." components refused.
package instruction
