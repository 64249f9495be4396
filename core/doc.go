// Package core contains the shared data model of TalentMesh: sessions,
// workflow instances with their append-only histories, capability
// descriptors, retrieved documents and the error taxonomy used across the
// orchestration, workflow and retrieval subsystems.
//
// The package is intentionally dependency-light; behavior lives in the
// packages that interpret these types (capability, router, workflow,
// retrieval, gateway, orchestrator).
package core
