package sqlinline

const QInsertPosterTask = `--sql 2e34339a-a3ce-421f-bef5-d3ce44a6d814
insert into poster_tasks (id, task_type, status, request_json, created_at, updated_at)
values ($1::uuid, $2::text, 'queued', $3::jsonb, now(), now())
returning created_at;
`

const QWorkerClaimPosterTask = `--sql 1f9d715a-bb3e-458e-9ab2-126a764c7384
with next_task as (
    select id
    from poster_tasks
    where status = 'queued'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update poster_tasks
    set status = 'running', started_at = now(), updated_at = now()
    where id in (select id from next_task)
    returning id, task_type, status, request_json, created_at, updated_at
)
select * from updated;
`

const QFinishPosterTask = `--sql c1116290-3ba9-47c5-b6cf-c61468aeda05
update poster_tasks
set status = $2::text,
    message = $3::text,
    result_json = $4::jsonb,
    finished_at = now(),
    updated_at = now()
where id = $1::uuid;
`

const QSelectPosterTask = `--sql a4fbfea2-ba04-4173-9e09-b52ab967dddc
select id, task_type, status, request_json, coalesce(result_json, 'null'::jsonb), coalesce(message, ''), created_at, updated_at
from poster_tasks
where id = $1::uuid;
`

const QInsertPosterAsset = `--sql 211a199b-e361-4872-b894-29f89415cd60
insert into poster_assets (id, task_id, result_name, item_index, storage_key, width, height, bytes, checksum, created_at)
values ($1::uuid, $2::uuid, $3::text, $4::int, $5::text, $6::int, $7::int, $8::bigint, $9::text, now())
on conflict (task_id, result_name, item_index) do update set
    storage_key = excluded.storage_key,
    width = excluded.width,
    height = excluded.height,
    bytes = excluded.bytes,
    checksum = excluded.checksum
returning created_at;
`

const QListPosterAssets = `--sql 50a3e309-8e75-4028-b952-aae9668d77d5
select id, task_id, result_name, item_index, storage_key, width, height, bytes, checksum, created_at
from poster_assets
where task_id = $1::uuid
order by item_index asc, result_name asc;
`

const QRequeueStalePosterTasks = `--sql 55066138-3af1-4bc3-bd71-4e9d08215785
update poster_tasks
set status = 'queued', started_at = null, updated_at = now()
where status = 'running'
  and started_at < now() - make_interval(secs => $1::int);
`
