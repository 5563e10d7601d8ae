// Package protocol owns the decoded-message contract consumed by the filter.
//
// Ownership boundary:
// - correlation id and kind discriminators
// - decoded message view over a wire frame
// - typed payload decoding (notifications, responses, stream chunks)
//
// Wire framing lives in protocol/frame, payload encoding in protocol/tlv,
// and per-message-type field requirements in protocol/schema.
package protocol
