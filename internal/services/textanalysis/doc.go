// Package textanalysis turns manuscript text into characters, chapters,
// scenes and illustration prompts by asking a JSON chat-completion model.
//
// The model never echoes long passages back. For chapter and scene splits it
// returns the opening words of each section and the text is cut locally, so
// the stored chapter and scene text is always a verbatim slice of the input.
package textanalysis
