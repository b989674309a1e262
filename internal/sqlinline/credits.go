package sqlinline

// QReserveCredits deducts credits only when the balance covers the cost.
// The WHERE clause makes check-and-deduct a single atomic statement.
const QReserveCredits = `--sql 8e1f6c0a-2f64-4f0e-9a57-0f3bb9c7c21e
update users
set credits = credits - $2,
    updated_at = now()
where id = $1::uuid
  and credits >= $2
returning credits;
`

const QRefundCredits = `--sql 1d9a2e44-60cd-49d5-9a0e-3d5e84d41a8c
update users
set credits = credits + $2,
    updated_at = now()
where id = $1::uuid;
`

const QSelectCredits = `--sql 5a7b0f3e-91a4-4d4f-8a12-c07e4c6b9f55
select credits
from users
where id = $1::uuid;
`
