// Package extract converts raw document bytes into plain text.
//
// Supported inputs are PDF (raw or base64 encoded), HTML and plain text.
// HTML is flattened either to visible text or to Markdown. Sniff detects the
// content type of undeclared uploads from their signature.
package extract
