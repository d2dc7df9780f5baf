package trace

// rawSchema describes the wire shape a chain client's
// simulate_validation_trace response must match before it is parsed
// into a Frame tree. Validating against a declared schema up front —
// rather than letting json.Unmarshal silently zero-fill a malformed
// document — mirrors how the teacher validates inbound payment
// payloads in extensions/bazaar/facilitator.go before decoding them
// into a typed struct.
const rawSchema = `{
  "type": "object",
  "required": ["root", "opcodesByFrame"],
  "properties": {
    "root": { "$ref": "#/definitions/frame" },
    "opcodesByFrame": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": { "$ref": "#/definitions/opcodeEvent" }
      }
    }
  },
  "definitions": {
    "frame": {
      "type": "object",
      "required": ["id", "from", "to", "type", "gas", "gasUsed"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "from": { "type": "string" },
        "to": { "type": "string" },
        "input": { "type": "string" },
        "output": { "type": "string" },
        "value": { "type": "string" },
        "gas": { "type": "integer", "minimum": 0 },
        "gasUsed": { "type": "integer", "minimum": 0 },
        "type": {
          "type": "string",
          "enum": ["CALL", "CREATE", "CREATE2", "STATICCALL", "DELEGATECALL"]
        },
        "logs": {
          "type": "array",
          "items": { "$ref": "#/definitions/log" }
        },
        "storageReads": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "storageWrites": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "calls": {
          "type": "array",
          "items": { "$ref": "#/definitions/frame" }
        }
      }
    },
    "log": {
      "type": "object",
      "required": ["address", "topics"],
      "properties": {
        "address": { "type": "string" },
        "topics": { "type": "array", "items": { "type": "string" } },
        "data": { "type": "string" }
      }
    },
    "opcodeEvent": {
      "type": "object",
      "required": ["op"],
      "properties": {
        "op": { "type": "string", "minLength": 1 },
        "addr": { "type": "string" }
      }
    }
  }
}`
