// Package ctc implements Connectionist Temporal
// Classification (CTC): a loss for training sequence
// models without frame-level alignments, and decoders
// which turn per-frame label probabilities into label
// sequences.
//
// For more information on CTC, see this paper:
// http://www.cs.toronto.edu/~graves/icml_2006.pdf.
//
// All inputs are log-probabilities, typically the output
// of a log-softmax.
// The blank symbol may live at any label index.
//
// The loss is available on plain batches (see Loss) and
// as an anydiff.Res (see Cost).
// Decoding is available greedily (see BestPath) and with
// a beam search that can rescore hypotheses using a
// word-level language model (see Decoder).
package ctc
