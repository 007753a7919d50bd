// Package common holds the configuration and logging glue shared by the rpc
// layer, the cmd entrypoints and the core services.
package common
