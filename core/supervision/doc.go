// Package supervision decides what happens to a unit (usually an actor)
// whose message delivery failed.
//
// A Supervisor is informed of each failure. A StrategySupervisor suspends the
// unit, checks whether the failure count within the Strategy's period has
// exceeded its intensity, and then resumes, restarts or stops the unit, or
// escalates to its parent supervisor. A supervisor without a parent stops
// the unit instead of escalating.
//
// The DefaultSupervisorOverride never stops anything: it logs and resumes.
// It is the last resort of a Registry, which resolves a unit's supervisor
// from its explicit supervisor, then a common supervisor registered for its
// protocol, then the registered default.
package supervision
