// Package protocol defines the JSON wire protocol between clients and the
// collaboration server: the command envelopes clients send over the
// websocket, decoded once at the connection boundary into a closed set of
// command types, and the event envelopes the server broadcasts back.
//
// Every envelope in either direction is a JSON object with a required
// "type" discriminator. Commands route by payload content, not by
// connection path, so one websocket endpoint serves every session.
package protocol
