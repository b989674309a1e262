package sqlinline

// QFindStalledSessions selects wizard sessions eligible for abandonment
// handling. All three dedup conditions live in the query: stale activity,
// not at the terminal step, not already marked.
const QFindStalledSessions = `--sql 9c3d1f72-5b0e-41d8-b6a7-2f8e0d4a6c13
select s.brand_id, s.user_id, u.email, coalesce(u.locale, ''), s.current_step, s.last_activity
from wizard_sessions s
join users u on u.id = s.user_id
where s.last_activity < $1
  and s.current_step <> $2
  and s.abandoned = false
order by s.last_activity asc
limit 500;
`

const QMarkSessionAbandoned = `--sql b4a8e6d1-7c2f-4e9b-a350-6d1c9e8f2b47
update wizard_sessions
set abandoned = true,
    updated_at = now()
where brand_id = $1::uuid;
`

// QTouchSession records wizard activity, clearing a stale abandoned flag
// when the user actually comes back.
const QTouchSession = `--sql e2c5a910-3f7d-4b68-92e1-8a4d6b0c7f39
insert into wizard_sessions (brand_id, user_id, current_step, last_activity, abandoned)
values ($1::uuid, $2::uuid, $3, now(), false)
on conflict (brand_id) do update
set current_step = excluded.current_step,
    last_activity = now(),
    abandoned = false,
    updated_at = now();
`
