package engine

import "github.com/google/uuid"

// ID prefixes distinguish record kinds in logs and foreign references.
func newMemoryID() string       { return "mem:" + uuid.NewString() }
func newRelationshipID() string { return "rel:" + uuid.NewString() }
func newAccessID() string       { return "acc:" + uuid.NewString() }
func newContextID() string      { return "ctx:" + uuid.NewString() }
