// Package ntt implements the deduplicating copy engine used to ingest
// legacy storage media into a content-addressed archive with full
// provenance. It defines the domain model shared by the work-claim
// coordinator, inode analyzer, plan executor, diagnostic service and
// recovery tool (packages db, blobstore, mount, analyzer, executor,
// diagnostic and recovery), plus the ambient error, logging and
// configuration helpers those packages build on.
package ntt
