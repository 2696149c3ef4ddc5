// Package plcingest polls a PLC directory's export endpoint and mirrors each
// DID's also-known-as handles into internal/identity.
package plcingest

import "encoding/json"

// maxAkaBytes is the longest also_known_as value recorded; PLC documents can
// carry arbitrary-length AKAs and a handful of pathological ones have been
// observed in the wild, so longer entries are dropped rather than stored.
const maxAkaBytes = 320

// entry is one line of the PLC export NDJSON stream.
type entry struct {
	DID        string          `json:"did"`
	Operation  json.RawMessage `json:"operation"`
	Nullified  bool            `json:"nullified"`
	CreatedAt  string          `json:"createdAt"`
	opType     string
	plcOp      *plcOperation
	tombstoned bool
}

type service struct {
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
}

type plcOperation struct {
	RotationKeys        []string           `json:"rotationKeys"`
	VerificationMethods map[string]string  `json:"verificationMethods"`
	AlsoKnownAs         []string           `json:"alsoKnownAs"`
	Services            map[string]service `json:"services"`
	Prev                *string            `json:"prev"`
	Sig                 string             `json:"sig"`
}

type plcTombstone struct {
	Prev string `json:"prev"`
	Sig  string `json:"sig"`
}

// legacyCreate is the deprecated v1 genesis operation, still seen far back
// in the export history. It carries a single handle rather than an
// alsoKnownAs list, so it is normalized into a synthetic plcOperation whose
// sole AKA is "at://" + handle.
type legacyCreate struct {
	SigningKey  string `json:"signingKey"`
	RecoveryKey string `json:"recoveryKey"`
	Handle      string `json:"handle"`
	Service     string `json:"service"`
	Sig         string `json:"sig"`
}

type operationEnvelope struct {
	Type string `json:"type"`
}

// decodeEntry parses one NDJSON line and normalizes its operation into
// either a plcOperation (AKAs to upsert) or a tombstone (DID to delete).
func decodeEntry(line []byte) (entry, error) {
	var e entry
	if err := json.Unmarshal(line, &e); err != nil {
		return entry{}, err
	}

	var env operationEnvelope
	if err := json.Unmarshal(e.Operation, &env); err != nil {
		return entry{}, err
	}
	e.opType = env.Type

	switch env.Type {
	case "plc_operation":
		var op plcOperation
		if err := json.Unmarshal(e.Operation, &op); err != nil {
			return entry{}, err
		}
		e.plcOp = &op
	case "plc_tombstone":
		e.tombstoned = true
	case "create":
		var c legacyCreate
		if err := json.Unmarshal(e.Operation, &c); err != nil {
			return entry{}, err
		}
		e.plcOp = &plcOperation{AlsoKnownAs: []string{"at://" + c.Handle}}
	}

	return e, nil
}

// filterAkas drops any also-known-as value longer than maxAkaBytes.
func filterAkas(akas []string) []string {
	out := make([]string, 0, len(akas))
	for _, aka := range akas {
		if len(aka) <= maxAkaBytes {
			out = append(out, aka)
		}
	}
	return out
}
