package talentmesh

// Version is the release version of TalentMesh.
const Version = "0.1.0"
