// Package httpmsg reads and writes HTTP/1.1 messages on raw connections.
//
// Requests and responses are parsed with net/http's wire readers and fully
// buffered, so a message is either handed over complete or reported as an
// *Error whose Kind tells the caller which status code to answer with.
package httpmsg
