// Package pattern holds the stateless text utilities used to attribute
// email to jobs: subject normalization, purchase-order extraction, sender
// domain extraction and trusted-link extraction.
//
// Every function is pure and safe for concurrent use.
package pattern
