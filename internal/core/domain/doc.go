// Package domain defines the core business entities for equation discovery.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - Sample: One observation of the field and its derivatives at a point
//   - LibraryTerm: A named candidate expression with an evaluation rule
//   - FeatureMatrix: The design matrix built from terms and samples
//   - CandidateEquation: A fitted model with coefficients and metrics
//   - DiscoveryResult: Everything one run produced
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. All other packages depend on
// domain, never the reverse. Its only external dependency is gonum's
// matrix type, which backs the feature matrix.
//
// # Import Rules
//
//   - Can Import: Standard library, gonum.org/v1/gonum/mat
//   - Cannot Import: Any other internal/ package
package domain
