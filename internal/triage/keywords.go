package triage

import "regexp"

type keywordGroup struct {
	canonical string
	keywords  []string
}

// speciesTable is checked top to bottom; the first keyword hit wins.
var speciesTable = []keywordGroup{
	{"dog", []string{"dog", "puppy", "canine", "pup"}},
	{"cat", []string{"cat", "kitten", "feline", "kitty"}},
	{"bird", []string{"bird", "parrot", "canary", "cockatiel", "budgie"}},
	{"rabbit", []string{"rabbit", "bunny", "hare"}},
	{"hamster", []string{"hamster", "gerbil", "guinea pig"}},
	{"reptile", []string{"lizard", "snake", "gecko", "iguana", "bearded dragon"}},
	{"fish", []string{"fish", "goldfish", "betta"}},
}

type breedBucket struct {
	species string
	size    string
	breeds  []string
}

// breedTable lists more specific names before names they contain
// ("french bulldog" before "bulldog").
var breedTable = []breedBucket{
	{"dog", "small", []string{"chihuahua", "yorkshire terrier", "pomeranian", "maltese", "pug", "french bulldog", "boston terrier", "dachshund", "jack russell"}},
	{"dog", "large", []string{"labrador", "golden retriever", "german shepherd", "rottweiler", "doberman", "great dane", "mastiff", "husky", "malamute", "saint bernard"}},
	{"dog", "medium", []string{"border collie", "australian shepherd", "cocker spaniel", "bulldog", "boxer", "beagle", "corgi", "shiba inu", "australian cattle dog"}},
	{"cat", "longhair", []string{"persian", "maine coon", "ragdoll", "norwegian forest", "siberian", "himalayan", "angora"}},
	{"cat", "shorthair", []string{"siamese", "british shorthair", "bengal", "russian blue", "abyssinian", "scottish fold", "american shorthair", "domestic shorthair"}},
}

const mixedBreed = "mixed breed"

var mixedKeywords = []string{"mixed", "mix", "mutt"}

type symptomKeyword struct {
	keyword   string
	canonical string
}

// symptomTable maps raw phrasings to canonical symptoms, in display order.
var symptomTable = []symptomKeyword{
	{"vomit", "vomiting"},
	{"throw up", "vomiting"},
	{"limp", "limping"},
	{"diarrhea", "diarrhea"},
	{"loose stool", "diarrhea"},
	{"not eating", "loss of appetite"},
	{"won't eat", "loss of appetite"},
	{"appetite", "appetite changes"},
	{"lethargic", "lethargy"},
	{"tired", "lethargy"},
	{"weak", "weakness"},
	{"scratch", "scratching"},
	{"itch", "itching"},
	{"cough", "coughing"},
	{"sneez", "sneezing"},
	{"discharge", "discharge"},
	{"runny", "discharge"},
	{"swelling", "swelling"},
	{"swollen", "swelling"},
	{"pain", "pain"},
	{"hurt", "pain"},
	{"yelp", "pain"},
	{"whimper", "pain"},
	{"breathing", "breathing difficulty"},
	{"panting", "excessive panting"},
	{"drool", "drooling"},
	{"shaking", "trembling"},
	{"trembl", "trembling"},
	{"seizure", "seizure"},
	{"convuls", "convulsions"},
	{"blood", "bleeding"},
	{"wound", "wound"},
	{"cut", "cut"},
}

// Message keyword tiers, checked CRITICAL first. The lists are disjoint.
var (
	criticalKeywords = []string{
		"not breathing", "can't breathe", "unconscious", "bleeding heavily", "convulsing",
		"seizure", "choking", "collapsed", "emergency", "won't wake up", "hit by car", "poisoned",
	}
	highKeywords = []string{
		"vomiting blood", "difficulty breathing", "severe pain", "won't eat", "lethargic",
		"diarrhea", "limping badly", "pale gums", "can't stand",
	}
	mediumKeywords = []string{
		"vomiting", "limping", "not eating well", "scratching a lot", "discharge",
		"coughing", "sneezing", "swelling",
	}
)

var (
	ageRe    = regexp.MustCompile(`(?:(\d+)\s*(?:year|yr)s?\s*old)|(?:(\d+)\s*(?:month|mo)s?\s*old)|(?:(\d+)\s*(?:week|wk)s?\s*old)|(?:age\s*(\d+))|(?:(\d+)\s*(?:year|yr)s?)`)
	weightRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(kg|kilogram|lb|lbs|pound|pounds)`)
)

type patternValue[T any] struct {
	re    *regexp.Regexp
	value T
}

var lifeStages = []patternValue[int]{
	{regexp.MustCompile(`\b(?:puppy|puppies|kitten)`), 0},
	{regexp.MustCompile(`\b(?:senior|elderly|old)\b`), 10},
	{regexp.MustCompile(`\b(?:young|juvenile)\b`), 2},
}

var sizeDescriptors = []patternValue[float64]{
	{regexp.MustCompile(`\b(?:small|tiny)\b`), 5.0},
	{regexp.MustCompile(`\b(?:large|big)\b`), 30.0},
	{regexp.MustCompile(`\bmedium\b`), 15.0},
}
