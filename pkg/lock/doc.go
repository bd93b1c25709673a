// Package lock provides short-lived leader locks for periodic work.
//
// Redis holds a key with SET NX PX and a random token; Unlock deletes the key
// only while it still carries that token. Local is an in-process equivalent
// for single-binary deployments and tests.
package lock
