package subgraph

const poolQuery = `query pool($pool: ID!, $block: Int!) {
  pool(id: $pool, block: { number: $block }) {
    tick
    liquidity
    token0 { id decimals }
    token1 { id decimals }
  }
}`

const positionsQuery = `query positions($pool: String!, $lastID: String!, $block: Int!, $first: Int!) {
  positions(
    first: $first,
    where: { pool: $pool, id_gt: $lastID, liquidity_gt: 0 },
    orderBy: id,
    block: { number: $block }
  ) {
    id
    owner
    liquidity
    tickLower { tickIdx }
    tickUpper { tickIdx }
  }
}`

const poolPositionsQuery = `query poolPositions($pool: String!, $lastID: String!, $block: Int!, $first: Int!, $excludeOwner: String!) {
  poolPositions(
    first: $first,
    where: { pool: $pool, id_gt: $lastID, liquidity_gt: 0, owner_not: $excludeOwner },
    orderBy: id,
    block: { number: $block }
  ) {
    id
    owner
    liquidity
    tickLower { tickIdx }
    tickUpper { tickIdx }
  }
}`
