package state

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/orca/internal/profile"
)

func u64(v uint64) *uint64 { return &v }

func sampleState() *State {
	p := profile.Default()
	p.Seed = u64(7)
	cycle := []float64{
		0, 0, 1, 0,
		1, 0, 0, 0,
		0, 0, 0, 1,
		0, 1, 0, 0,
	}
	return &State{
		Profile:        *p,
		PreflightFlags: []Flag{FlagDisableAllPersonsMFAPolicy},
		Persons: []Person{
			{
				PreflightState: PreflightPresent,
				Username:       "alice",
				DisplayName:    "Alice",
				MemberOf:       NewGroups("orca_testers", "idm_people_self_name_write"),
				Credential:     PasswordCredential("hunter2"),
				Model:          BasicModel(),
			},
			{
				PreflightState: PreflightAbsent,
				Username:       "bob",
				DisplayName:    "Bob",
				MemberOf:       NewGroups(),
				Credential:     PasswordCredential("correct horse"),
				Model:          MarkovModel(cycle, u64(42), &NormalDist{Mean: 25, StdDev: 5}),
			},
			{
				PreflightState: PreflightPresent,
				Username:       "carol",
				DisplayName:    "Carol",
				MemberOf:       NewGroups("orca_testers"),
				Credential:     PasswordCredential(""),
				Model:          MarkovModel(cycle, nil, nil),
			},
			{
				PreflightState: PreflightPresent,
				Username:       "dave",
				MemberOf:       NewGroups(),
				Credential:     PasswordCredential("letmein"),
			},
		},
	}
}

func roundTrip(t *testing.T, s *State, name string) *State {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, s.WriteToPath(path))
	got, err := ReadFromPath(path)
	require.NoError(t, err)
	return got
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		state *State
	}{
		{"all variants", sampleState()},
		{"empty persons", &State{Profile: *profile.Default()}},
		{"empty persons non-nil", &State{Profile: *profile.Default(), PreflightFlags: []Flag{}, Persons: []Person{}}},
	}

	for _, tt := range tests {
		for _, file := range []string{"state.json", "state.json.gz"} {
			t.Run(tt.name+"/"+file, func(t *testing.T) {
				got := roundTrip(t, tt.state, file)
				if diff := cmp.Diff(tt.state, got, cmpopts.EquateEmpty()); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestRoundTrip_SinglePerson(t *testing.T) {
	s := &State{
		Profile: *profile.Default(),
		Persons: []Person{{
			PreflightState: PreflightPresent,
			Username:       "alice",
			Credential:     PasswordCredential("hunter2"),
			Model:          BasicModel(),
		}},
	}

	got := roundTrip(t, s, "alice.json")

	require.Len(t, got.Persons, 1)
	p := got.Persons[0]
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, ModelBasic, p.Model.Kind())
	assert.Equal(t, CredentialPassword, p.Credential.Type)
	assert.Equal(t, "hunter2", p.Credential.Plain)
	assert.Empty(t, p.MemberOf)
}

func TestWriteToPath_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	s := sampleState()
	require.NoError(t, s.WriteToPath(path))

	got, err := ReadFromPath(path)
	require.NoError(t, err)
	assert.Len(t, got.Persons, 4)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteToPath_IOError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "state.json")
	err := sampleState().WriteToPath(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.NoFileExists(t, path)
}

func TestWriteToPath_SerializationError(t *testing.T) {
	s := &State{Persons: []Person{{
		PreflightState: PreflightPresent,
		Username:       "alice",
		Credential:     PasswordCredential("x"),
		Model:          Model{Type: ModelMarkov},
	}}}
	path := filepath.Join(t.TempDir(), "state.json")

	err := s.WriteToPath(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.NoFileExists(t, path)
}

func TestReadFromPath_Missing(t *testing.T) {
	_, err := ReadFromPath(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestReadFromPath_BadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json.gz")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := ReadFromPath(path)
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestWriteToPath_GzipIsCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json.gz")
	require.NoError(t, sampleState().WriteToPath(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(zr).Decode(&doc))
	assert.Contains(t, doc, "persons")
}

func TestUnmarshal_Rejects(t *testing.T) {
	person := func(extra string) string {
		return `{"profile":{},"preflight_flags":[],"persons":[{"preflight_state":"present","username":"alice","display_name":"A","member_of":[],"credential":{"type":"password","plain":"x"},` + extra + `}]}`
	}

	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing persons", `{"profile":{},"preflight_flags":[]}`},
		{"unknown top level field", `{"profile":{},"preflight_flags":[],"persons":[],"extra":1}`},
		{"unknown flag", `{"profile":{},"preflight_flags":["enable_everything"],"persons":[]}`},
		{"unknown model", person(`"model":{"type":"random"}`)},
		{"markov without matrix", person(`"model":{"type":"markov"}`)},
		{"basic with params", person(`"model":{"type":"basic","rng_seed":1}`)},
		{"negative seed", person(`"model":{"type":"markov","distributions_matrix":[],"rng_seed":-1}`)},
		{"fractional seed", person(`"model":{"type":"markov","distributions_matrix":[],"rng_seed":1.5}`)},
		{"delay triple", person(`"model":{"type":"markov","distributions_matrix":[],"normal_dist_mean_and_std_dev":[1,2,3]}`)},
		{"missing model", `{"profile":{},"preflight_flags":[],"persons":[{"preflight_state":"present","username":"alice","display_name":"A","member_of":[],"credential":{"type":"password","plain":"x"}}]}`},
		{"bad credential", `{"profile":{},"preflight_flags":[],"persons":[{"preflight_state":"present","username":"alice","display_name":"A","member_of":[],"credential":{"type":"token","plain":"x"},"model":{"type":"basic"}}]}`},
		{"bad preflight state", `{"profile":{},"preflight_flags":[],"persons":[{"preflight_state":"maybe","username":"alice","display_name":"A","member_of":[],"credential":{"type":"password","plain":"x"},"model":{"type":"basic"}}]}`},
		{"empty username", `{"profile":{},"preflight_flags":[],"persons":[{"preflight_state":"present","username":"","display_name":"A","member_of":[],"credential":{"type":"password","plain":"x"},"model":{"type":"basic"}}]}`},
		{"duplicate groups", `{"profile":{},"preflight_flags":[],"persons":[{"preflight_state":"present","username":"alice","display_name":"A","member_of":["a","a"],"credential":{"type":"password","plain":"x"},"model":{"type":"basic"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSerialization)
		})
	}
}

func TestUnmarshal_DuplicateUsername(t *testing.T) {
	s := &State{Persons: []Person{
		{PreflightState: PreflightPresent, Username: "alice", Credential: PasswordCredential("a"), Model: BasicModel()},
		{PreflightState: PreflightPresent, Username: "alice", Credential: PasswordCredential("b"), Model: BasicModel()},
	}}
	data, err := s.Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSerialization)
	assert.Contains(t, err.Error(), "duplicate username")
}

func TestMarshal_NeverNull(t *testing.T) {
	data, err := (&State{}).Marshal()
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `[]`, string(doc["preflight_flags"]))
	assert.JSONEq(t, `[]`, string(doc["persons"]))
}

func TestGroups(t *testing.T) {
	g := NewGroups("b", "a", "b", "c")
	assert.Equal(t, Groups{"a", "b", "c"}, g)
	assert.True(t, g.Contains("b"))
	assert.False(t, g.Contains("d"))

	data, err := json.Marshal(Groups{"z", "a", "z"})
	require.NoError(t, err)
	assert.JSONEq(t, `["a","z"]`, string(data))

	data, err = json.Marshal(Groups(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	var decoded Groups
	require.NoError(t, json.Unmarshal([]byte(`["y","x","y"]`), &decoded))
	assert.Equal(t, Groups{"x", "y"}, decoded)
}

func TestState_HasFlagAndStats(t *testing.T) {
	s := sampleState()
	assert.True(t, s.HasFlag(FlagDisableAllPersonsMFAPolicy))
	assert.False(t, (&State{}).HasFlag(FlagDisableAllPersonsMFAPolicy))

	assert.Equal(t, Stats{Persons: 4, Present: 3, Absent: 1, Basic: 2, Markov: 2}, s.Stats())
}

func TestFlagAndPreflightState_UnmarshalText(t *testing.T) {
	var f Flag
	require.NoError(t, f.UnmarshalText([]byte("disable_all_persons_mfa_policy")))
	assert.Equal(t, FlagDisableAllPersonsMFAPolicy, f)
	assert.Error(t, f.UnmarshalText([]byte("nope")))

	var p PreflightState
	require.NoError(t, p.UnmarshalText([]byte("absent")))
	assert.Equal(t, PreflightAbsent, p)
	assert.Error(t, p.UnmarshalText([]byte("gone")))
}
