// Package interchange imports and exports session data in three formats.
//
// Inbound files (full backup JSON, simple JSON, batch CSV) are detected,
// parsed into a canonical ImportBatch, validated all-or-nothing, and only
// then committed to the session store with replace semantics: the store's
// clear+insert is one unit, and no parse or validation failure ever touches
// stored data. Outbound, the live session serializes losslessly (full
// backup) or as lossy question/answer/hint projections (simple JSON, CSV).
package interchange
