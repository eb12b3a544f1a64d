// Package normalisers turns files into text before ingestion. Each
// sub-package extracts text from one family of MIME types; the Registry
// here picks the best one for a document.
//
// Normalisers are registered with the Registry at startup.
package normalisers
