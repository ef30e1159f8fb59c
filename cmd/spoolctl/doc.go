// Package main implements spoolctl, the operator CLI for a spool tree.
//
// spoolctl enters, moves, lists and removes queue files, queries lookup
// table lists, and asks the rewrite service to rewrite or resolve
// addresses. Configuration is loaded once per invocation through
// commandContext; commands annotated with skipConfigLoad run without it.
package main
