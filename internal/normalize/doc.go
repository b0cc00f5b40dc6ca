// Package normalize holds the two stateful numeric transformers of the
// pipeline: IQR outlier bounds and standard scaling.
//
// Both follow the same contract. Fit computes statistics once from a
// reference set, the fitted values are frozen, and every later transform
// reuses them. Transforming before fitting is a STATE error. Fitted state is
// persisted with SaveGob so inference can replay exactly what training saw.
package normalize
