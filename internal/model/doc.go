// Package model defines the data types shared across the streaming client:
// quotes and symbol normalization.
package model
