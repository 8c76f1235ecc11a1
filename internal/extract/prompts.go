package extract

import "fmt"

// Prompts instruct the model to answer with bare JSON. The endpoint does not
// reliably honor that, which is why every response still goes through
// jsonrepair.

const schemaSystemPrompt = "You are a JSON schema generation assistant. Analyze form templates and create " +
	"JSON schemas that define the structure for extracting data from filled forms. " +
	"Respond with ONLY valid JSON (an object or array) representing the schema. " +
	"Do not include any explanatory text outside the JSON."

const schemaUserPrompt = "Analyze this PDF form template page and generate a JSON schema for extracting " +
	"answers from similar filled form pages. The schema should define the structure " +
	"and field names that will be used to extract data from completed forms. " +
	"Include field types and descriptions where applicable."

const extractSystemPrompt = "You are a data extraction assistant. Extract information from filled forms " +
	"according to the provided JSON schema. Respond with ONLY valid JSON containing " +
	"the extracted answers. Do not include any explanatory text."

func extractUserPrompt(schema []byte) string {
	return fmt.Sprintf(
		"Using this JSON schema, extract answers from the attached filled form page. "+
			"Return only the extracted data as JSON matching the schema structure. "+
			"Schema: %s", schema,
	)
}
