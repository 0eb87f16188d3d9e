// ABOUTME: On-disk layout of per-tenant databases under the data root
// ABOUTME: One directory per tenant, one file per schema, partition subfolders

package dbpool

import "path/filepath"

// DatabaseDir returns the directory holding a tenant's database files.
// Partitioned schemas live in a dedicated "<schema>-partitions" subdirectory,
// e.g. data/<tenant>/audit-partitions/.
func DatabaseDir(root, tenant, schema, partition string) string {
	if partition != "" {
		return filepath.Join(root, tenant, schema+"-partitions")
	}
	return filepath.Join(root, tenant)
}

// DatabaseFile returns the path of the SQLite file for one
// (tenant, schema, partition) triple. The default schema file is named
// db.sqlite; named schemas append their name, partitions append further.
func DatabaseFile(root, tenant, schema, partition string) string {
	name := "db"
	if schema != "" {
		name += "-" + schema
		if partition != "" {
			name += "-" + partition
		}
	}
	return filepath.Join(DatabaseDir(root, tenant, schema, partition), name+".sqlite")
}

// poolKey builds the composite cache key for one open handle.
func poolKey(tenant, schema, partition string) string {
	key := tenant + "-" + schema
	if partition != "" {
		key += "-" + partition
	}
	return key
}
