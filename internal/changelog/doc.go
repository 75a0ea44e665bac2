// Package changelog exposes the append-only version ledger.
//
// Entries are appended only by the store's commit transaction; this package
// reads them back (History, Export) and folds them (Replay) to check that a
// record's stored version is what its own history says it should be.
//
// Replay starts from 0.0: the INITIAL entry written at creation moves a
// record to 1.0 and every later MAJOR or MINOR entry applies one bump.
package changelog
