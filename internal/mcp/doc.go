// Package mcp exposes the workflow as MCP tools over stdio.
//
// Tools:
//
//	submit_task      start a run (optionally wait for it to finish)
//	workflow_status  current status plus the active and last run
//	list_channels    the fixed channel set with message counts
//	list_messages    one channel's log, newest last
//
// Every text field returned to the client passes through the secrets
// scrubber.
package mcp
