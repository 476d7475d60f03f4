package curriculum

// documentSchema describes a curriculum document: an ordered array of subjects.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "subject", "topics"],
    "properties": {
      "id":      {"type": "string", "minLength": 1},
      "subject": {"type": "string", "minLength": 1},
      "marks":   {"type": "number", "minimum": 0},
      "code":    {"type": "string"},
      "topics": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["id", "title", "subtopics"],
          "properties": {
            "id":    {"type": "string", "minLength": 1},
            "title": {"type": "string"},
            "subtopics": {
              "type": "array",
              "items": {
                "type": "object",
                "required": ["id", "title"],
                "properties": {
                  "id":            {"type": "string", "minLength": 1},
                  "title":         {"type": "string"},
                  "notes":         {"type": "string"},
                  "progress":      {"type": "string"},
                  "targetTime":    {"type": "integer", "minimum": 0},
                  "remainingTime": {"type": "integer", "minimum": 0}
                }
              }
            }
          }
        }
      }
    }
  }
}`
