package session

import (
	"fmt"
	"os"
)

// FlightSchemaName selects FlightParamsSchema in place of a schema file path.
const FlightSchemaName = "flight"

// FlightParamsSchema describes the flight search parameters branches are
// usually recorded with: IATA airport codes, ISO dates and a passenger count.
// Every field is a string, matching how collaborators forward tool arguments.
const FlightParamsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "origin": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "destination": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "departure_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "return_date": {"type": "string", "pattern": "^(\\d{4}-\\d{2}-\\d{2})?$"},
    "adults": {"type": "string", "pattern": "^[1-9][0-9]?$"}
  },
  "required": ["origin", "destination", "departure_date", "adults"]
}`

// LoadParamsSchema resolves a params schema reference: empty means no schema,
// FlightSchemaName selects the built-in flight schema, anything else is read
// as a file path.
func LoadParamsSchema(ref string) ([]byte, error) {
	switch ref {
	case "":
		return nil, nil
	case FlightSchemaName:
		return []byte(FlightParamsSchema), nil
	}

	raw, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read params schema: %w", err)
	}

	return raw, nil
}
