// Package sqlinline holds the SQL statements of the task store and the key store. Each
// statement carries a `--sql <uuid>` marker so it can be traced in pg_stat_statements.
package sqlinline

// QSelectModelAPIKey reads the language-model key stored for a provider. Blank keys count
// as missing.
const QSelectModelAPIKey = `--sql 22a9a1b2-7b4e-4644-8a74-74c69c594acf
select token
from integration_tokens
where provider = $1::text
  and btrim(token) <> ''
limit 1;
`

// QUpsertModelAPIKey stores a provider key; deployment properties such as the Azure
// endpoint travel in properties.
const QUpsertModelAPIKey = `--sql 75852376-6338-4563-b1aa-9f3914785d0a
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = integration_tokens.properties || excluded.properties,
    updated_at = now();
`
