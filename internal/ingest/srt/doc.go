// Package srt carries PV4 container bytes over SRT (Secure Reliable
// Transport). Server accepts publishers in listener mode and Caller pulls
// from remote listeners; both feed the ingest registry.
package srt
