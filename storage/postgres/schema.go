package postgres

const schema = `
CREATE TABLE IF NOT EXISTS device_specifications (
	tenant_id        TEXT NOT NULL,
	token            TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	container_policy TEXT NOT NULL DEFAULT '',
	metadata         JSONB,
	PRIMARY KEY (tenant_id, token)
);

CREATE TABLE IF NOT EXISTS devices (
	tenant_id           TEXT NOT NULL,
	hardware_id         TEXT NOT NULL,
	specification_token TEXT NOT NULL,
	site_token          TEXT NOT NULL DEFAULT '',
	assignment_token    TEXT NOT NULL DEFAULT '',
	parent_hardware_id  TEXT NOT NULL DEFAULT '',
	metadata            JSONB,
	created_at          TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, hardware_id)
);
`

const selectDevice = `
SELECT hardware_id, specification_token, site_token, assignment_token,
	parent_hardware_id, metadata, created_at
FROM devices
WHERE tenant_id = $1 AND hardware_id = $2`

const selectSpecification = `
SELECT token, name, container_policy, metadata
FROM device_specifications
WHERE tenant_id = $1 AND token = $2`

const upsertDevice = `
INSERT INTO devices (
	tenant_id, hardware_id, specification_token, site_token, assignment_token,
	parent_hardware_id, metadata, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (tenant_id, hardware_id) DO UPDATE SET
	specification_token = EXCLUDED.specification_token,
	site_token          = EXCLUDED.site_token,
	assignment_token    = EXCLUDED.assignment_token,
	parent_hardware_id  = EXCLUDED.parent_hardware_id,
	metadata            = EXCLUDED.metadata`

const upsertSpecification = `
INSERT INTO device_specifications (tenant_id, token, name, container_policy, metadata)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (tenant_id, token) DO UPDATE SET
	name             = EXCLUDED.name,
	container_policy = EXCLUDED.container_policy,
	metadata         = EXCLUDED.metadata`
