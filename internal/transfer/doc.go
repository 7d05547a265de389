// Package transfer moves encrypted files to and from the drive backend.
//
// A Manager owns every transfer of a session. Uploads split a file into
// chunks of ChunkSize bytes, seal each one under the file's DataKey and send
// them with a bounded pool of workers. Downloads fetch, verify and decrypt
// chunks with the same kind of pool and write the plaintext strictly in
// chunk order, either after buffering the whole file or through a bounded
// window when the file is large.
//
// Each transfer can be paused, resumed and cancelled on its own. Pausing
// stops new chunks from being dispatched and lets in-flight ones finish, so
// a resumed transfer picks up at the next unsent chunk. Every backend call
// runs under the configured retry.Policy.
//
// Transfers always end in a terminal state (completed, aborted or failed)
// with the error kept on the Status for inspection.
package transfer
