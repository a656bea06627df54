// Package org implements the multi-tenant membership model: organizations,
// role-bearing memberships, org-scoped API keys, and the request-time
// authorization gate.
//
// The package's one hard invariant is that an organization with any members
// always retains at least one admin. Every role mutation that could break it
// (demotion, removal, leaving) runs as a decrement-guarded conditional write
// inside a transaction, so two concurrent demotions cannot both observe "two
// admins" and leave zero.
package org
