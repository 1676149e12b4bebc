package synchronizer

// Built-in channel names.
const (
	ChannelSound    = "sound"
	ChannelVisual   = "visual"
	ChannelParticle = "particle"
)

const soundSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["id", "playing"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"playing": {"type": "boolean"},
		"volume": {"type": "number", "minimum": 0, "maximum": 10},
		"speed": {"type": "number", "exclusiveMinimum": 0, "maximum": 20},
		"looped": {"type": "boolean"}
	},
	"additionalProperties": false
}`

const visualSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["on"],
	"properties": {
		"on": {"type": "boolean"},
		"brightness": {"type": "number", "minimum": 0, "maximum": 1},
		"color": {
			"type": "object",
			"required": ["r", "g", "b"],
			"properties": {
				"r": {"type": "number", "minimum": 0, "maximum": 1},
				"g": {"type": "number", "minimum": 0, "maximum": 1},
				"b": {"type": "number", "minimum": 0, "maximum": 1}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`

const particleSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["enabled"],
	"properties": {
		"enabled": {"type": "boolean"},
		"rate": {"type": "number", "minimum": 0},
		"lifetime": {"type": "number", "minimum": 0},
		"size": {"type": "number", "minimum": 0}
	},
	"additionalProperties": false
}`

// builtinChannels are registered by New.
var builtinChannels = []struct {
	name   string
	schema string
}{
	{ChannelSound, soundSchema},
	{ChannelVisual, visualSchema},
	{ChannelParticle, particleSchema},
}
