package knowledge

var stopwords = toSet(
	// articles, pronouns, determiners
	"a", "an", "the", "this", "that", "these", "those", "i", "me", "my", "myself",
	"we", "our", "ours", "ourselves", "you", "your", "yours", "yourself", "yourselves",
	"he", "him", "his", "himself", "she", "her", "hers", "herself", "it", "its", "itself",
	"they", "them", "their", "theirs", "themselves", "what", "which", "who", "whom",
	"whose", "whatever", "whoever", "each", "every", "either", "neither", "any", "some",
	"such", "both", "all", "few", "more", "most", "other", "another", "own", "same",
	// auxiliaries
	"am", "is", "are", "was", "were", "be", "been", "being", "have", "has", "had",
	"having", "do", "does", "did", "doing", "done", "will", "would", "shall", "should",
	"can", "could", "may", "might", "must", "ought",
	// contractions after apostrophes are blanked
	"don", "doesn", "didn", "isn", "aren", "wasn", "weren", "hasn", "haven", "hadn",
	"won", "wouldn", "shouldn", "couldn", "mustn", "needn", "ve", "ll", "re", "im",
	"ive", "youre", "theyre", "thats", "whats", "lets",
	// prepositions and conjunctions
	"and", "but", "if", "or", "because", "as", "until", "while", "of", "at", "by",
	"for", "with", "about", "against", "between", "into", "through", "during",
	"before", "after", "above", "below", "to", "from", "up", "down", "in", "out",
	"on", "off", "over", "under", "again", "further", "then", "once", "than", "so",
	"nor", "not", "no", "yet", "via", "per", "upon", "within", "without", "onto",
	"among", "across", "along", "around", "toward", "towards",
	// adverbs
	"here", "there", "when", "where", "why", "how", "very", "too", "just", "only",
	"also", "now", "really", "quite", "rather", "already", "still", "even", "ever",
	"never", "always", "often", "sometimes", "usually", "maybe", "perhaps", "almost",
	"much", "many", "well", "however", "therefore", "thus", "instead", "otherwise",
	// conversational filler
	"tell", "please", "know", "like", "want", "get", "got", "give", "show", "let",
	"say", "said", "thing", "things", "something", "anything", "everything", "way",
	"yes", "ok", "okay", "hi", "hello", "hey", "thanks", "thank",
)

func isStopword(w string) bool {
	return stopwords[w]
}

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
