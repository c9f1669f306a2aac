package analysis

import (
	"fmt"
	"strings"
)

// noExternalData marks an empty corpus in the prompt. The instructions tell
// the model to flag everything as its own knowledge in that case, and the
// pipeline records the result as model-knowledge rather than corpus-backed.
const noExternalData = "[NO EXTERNAL DATA AVAILABLE]"

const promptTemplate = `You are analyzing real-user reviews of the product %q.

Summarize what actual owners praise and complain about, objectively. Ignore
advertising copy, affiliate boilerplate, and any mentions of other products,
even similarly named ones. Finish with an overall verdict and a 1-10 rating.

If the data below reads %q, you have no web evidence: answer from your own
knowledge of the product and say clearly that the report is not based on
current user reviews.

Data:
%s`

// BuildPrompt assembles the analysis prompt and reports which source kind a
// successful generation should carry.
func BuildPrompt(product, corpusText string) (string, SourceKind) {
	kind := SourceCorpus
	data := strings.TrimSpace(corpusText)
	if data == "" {
		data = noExternalData
		kind = SourceModelKnowledge
	}
	return fmt.Sprintf(promptTemplate, product, noExternalData, data), kind
}
